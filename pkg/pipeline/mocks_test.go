package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

type mockSchema struct {
	mock.Mock
}

func (m *mockSchema) Validate(documentType string, doc domain.StructuredDocument) error {
	args := m.Called(documentType, doc)
	return args.Error(0)
}

type mockTransformer struct {
	mock.Mock
}

func (m *mockTransformer) ToPolicyDefinition(doc domain.StructuredDocument) (*domain.PolicyDefinition, error) {
	args := m.Called(doc)
	def, _ := args.Get(0).(*domain.PolicyDefinition)
	return def, args.Error(1)
}

func (m *mockTransformer) ToDocument(resp domain.ValidationResponse) (domain.StructuredDocument, error) {
	args := m.Called(resp)
	doc, _ := args.Get(0).(domain.StructuredDocument)
	return doc, args.Error(1)
}

type mockValidator struct {
	mock.Mock
}

func (m *mockValidator) Validate(ctx context.Context, p *domain.Policy) (domain.ValidationOutcome, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(domain.ValidationOutcome), args.Error(1)
}
