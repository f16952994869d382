package browser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/maltedev/catalog-scraper/internal/wait"
	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
)

func TestWrapPage(t *testing.T) {
	page := WrapPage(nil)
	assert.IsType(t, &pwPage{}, page)
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))

	err := mapError(fmt.Errorf("waiting for selector: %w", playwright.ErrTimeout))
	assert.ErrorIs(t, err, wait.ErrTimeout)

	other := errors.New("target closed")
	assert.Equal(t, other, mapError(other))
}
