package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/condex/internal/domain"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrZeroAmount, http.StatusBadRequest},
		{fmt.Errorf("exchange: cancel 1: %w", domain.ErrNotProposer), http.StatusForbidden},
		{domain.ErrBundleNotFound, http.StatusNotFound},
		{domain.ErrConditionNotMet, http.StatusConflict},
		{domain.ErrInsufficientPoolLiquidity, http.StatusUnprocessableEntity},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}
