package errors

import (
	"testing"

	"google.golang.org/grpc/codes"
)

func TestGRPCCodeMapping(t *testing.T) {
	cases := []struct {
		code Code
		want codes.Code
	}{
		{CodeStateEmptySessionID, codes.InvalidArgument},
		{CodeStateInvalidSection, codes.InvalidArgument},
		{CodeWorkflowMalformedInput, codes.InvalidArgument},
		{CodeStateSectionMismatch, codes.FailedPrecondition},
		{CodeDecisionNoNextSection, codes.FailedPrecondition},
		{CodeNotFound, codes.NotFound},
		{CodeNarratorSectionNotFound, codes.NotFound},
		{CodeStoragePathEscape, codes.PermissionDenied},
		{CodeWorkflowTurnCancelled, codes.Canceled},
		{CodeUnknown, codes.Internal},
		{Code("SOMETHING_NEW"), codes.Internal},
	}

	for _, tc := range cases {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.code, tc.want, got)
		}
	}
}
