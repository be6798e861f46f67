// Package errors provides machine-readable error codes for the engine.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// State errors
	CodeStateEmptySessionID     Code = "STATE_EMPTY_SESSION_ID"
	CodeStateEmptyGameID        Code = "STATE_EMPTY_GAME_ID"
	CodeStateInvalidSection     Code = "STATE_INVALID_SECTION"
	CodeStateSectionMismatch    Code = "STATE_SECTION_MISMATCH"
	CodeStateInvalidMergeUpdate Code = "STATE_INVALID_MERGE_UPDATE"

	// Narrator errors
	CodeNarratorSectionNotFound Code = "NARRATOR_SECTION_NOT_FOUND"

	// Rules errors
	CodeRulesExtractionFailed  Code = "RULES_EXTRACTION_FAILED"
	CodeRulesParseFailed       Code = "RULES_PARSE_FAILED"
	CodeRulesInvalidChoice     Code = "RULES_INVALID_CHOICE"
	CodeRulesInvalidNextAction Code = "RULES_INVALID_NEXT_ACTION"

	// Decision errors
	CodeDecisionNoNextSection      Code = "DECISION_NO_NEXT_SECTION"
	CodeDecisionInvalidChoiceIndex Code = "DECISION_INVALID_CHOICE_INDEX"
	CodeDecisionInvalidNextSection Code = "DECISION_INVALID_NEXT_SECTION"

	// Trace errors
	CodeTraceInvalidAction Code = "TRACE_INVALID_ACTION"

	// Character errors
	CodeCharacterInvalidStats      Code = "CHARACTER_INVALID_STATS"
	CodeCharacterInventoryOverflow Code = "CHARACTER_INVENTORY_OVERFLOW"

	// Storage errors
	CodeNotFound           Code = "NOT_FOUND"
	CodeStoragePathEscape  Code = "STORAGE_PATH_ESCAPE"
	CodeStorageWriteFailed Code = "STORAGE_WRITE_FAILED"

	// Dice errors
	CodeDiceMissing     Code = "DICE_MISSING"
	CodeDiceInvalidSpec Code = "DICE_INVALID_SPEC"

	// Workflow errors
	CodeWorkflowMalformedInput Code = "WORKFLOW_MALFORMED_INPUT"
	CodeWorkflowTurnCancelled  Code = "WORKFLOW_TURN_CANCELLED"
)

// GRPCCode maps domain codes to gRPC status codes for transport adapters.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeStateEmptySessionID,
		CodeStateEmptyGameID,
		CodeStateInvalidSection,
		CodeRulesInvalidChoice,
		CodeRulesInvalidNextAction,
		CodeDecisionInvalidChoiceIndex,
		CodeDiceMissing,
		CodeDiceInvalidSpec,
		CodeWorkflowMalformedInput:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeStateSectionMismatch,
		CodeStateInvalidMergeUpdate,
		CodeDecisionNoNextSection,
		CodeDecisionInvalidNextSection,
		CodeTraceInvalidAction,
		CodeCharacterInvalidStats,
		CodeCharacterInventoryOverflow:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeNarratorSectionNotFound:
		return codes.NotFound

	// PermissionDenied - path confinement violations
	case CodeStoragePathEscape:
		return codes.PermissionDenied

	// Cancelled - turn deadline or caller cancellation
	case CodeWorkflowTurnCancelled:
		return codes.Canceled

	default:
		return codes.Internal
	}
}
