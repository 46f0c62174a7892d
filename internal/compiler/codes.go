package compiler

// Definition error codes reported in domain.DefinitionError.Code.
const (
	CodeFlowMalformed      = "FLOW_MALFORMED"
	CodeFlowMissingID      = "FLOW_MISSING_ID"
	CodeFlowMissingVersion = "FLOW_MISSING_VERSION"
	CodeFlowNoNodes        = "FLOW_NO_NODES"
	CodeNodeMissingID      = "NODE_MISSING_ID"
	CodeNodeMissingType    = "NODE_MISSING_TYPE"
	CodeNodeUnknownType    = "NODE_UNKNOWN_TYPE"
	CodeNodeDuplicate      = "NODE_DUPLICATE"
	CodeChoiceNoOptions    = "CHOICE_NO_OPTIONS"
	CodeChoiceNextNotMap   = "CHOICE_NEXT_NOT_MAP"
	CodeChoiceOptionNoNext = "CHOICE_OPTION_NO_NEXT"
	CodeFormNoFields       = "FORM_NO_FIELDS"
	CodeFormNoNext         = "FORM_NO_NEXT"
	CodeFieldMissingKey    = "FIELD_MISSING_KEY"
	CodeFieldUnknownInput  = "FIELD_UNKNOWN_INPUT"
	CodeDynamicNoQuery     = "DYNAMIC_NO_QUERY"
	CodeDynamicNoNext      = "DYNAMIC_NO_NEXT"
	CodeNextInvalid        = "NEXT_INVALID"
	CodeNextDangling       = "NEXT_DANGLING"
	CodeStartDangling      = "START_DANGLING"
	CodeSaveInvalid        = "SAVE_INVALID"
	CodeSaveReservedKey    = "SAVE_RESERVED_KEY"
	CodeCommitDangling     = "COMMIT_DANGLING"
)

// Loader codes.
const (
	CodeFlowDuplicate  = "FLOW_DUPLICATE"
	CodeFlowDirMissing = "FLOW_DIR_MISSING"
)
