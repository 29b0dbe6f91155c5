package entities

import (
	"time"

	"github.com/jDay-whyT/converterBot-backend/internal/convert"
)

type ConversionParams struct {
	Quality int  `validate:"min=1,max=100"`
	MaxSide *int `validate:"omitempty,gt=0"`
}

// ConversionRequest is one upload as received at the HTTP boundary.
type ConversionRequest struct {
	Data        []byte
	Filename    string
	ContentType string
	Params      ConversionParams
}

// ConversionOutcome is filled as far as the request got. JPEG is set only
// on success.
type ConversionOutcome struct {
	JPEG     []byte
	Route    convert.Route
	Strategy string
	Failures convert.Diagnostic
	InBytes  int
	Elapsed  time.Duration
}
