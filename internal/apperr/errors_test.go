package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsFindsWrappedError(t *testing.T) {
	base := New(CodeNotFound, "cart not found")
	wrapped := fmt.Errorf("load cart: %w", base)

	typed := As(wrapped)
	if assert.NotNil(t, typed) {
		assert.Equal(t, CodeNotFound, typed.Code())
	}
	assert.True(t, Is(wrapped, CodeNotFound))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Nil(t, As(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("unique violation")
	err := Wrap(CodeConflict, cause, "order code collision")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "unique violation")
}

func TestInsufficientStockCarriesDetails(t *testing.T) {
	err := InsufficientStock(StockShortage{VariantID: "v1", Requested: 2, Available: 1})

	assert.Equal(t, CodeInsufficientStock, err.Code())
	assert.Equal(t, StockShortage{VariantID: "v1", Requested: 2, Available: 1}, err.Details())
	assert.Equal(t, http.StatusConflict, MetadataFor(err.Code()).HTTPStatus)
}

func TestMetadataFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_ELSE"))
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
	assert.False(t, meta.DetailsAllowed)
}
