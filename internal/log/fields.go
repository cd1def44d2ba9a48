package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldOperation    = "operation"
	FieldError        = "error"
	FieldErrorType    = "error_type"
	FieldDuration     = "duration_ms"
	FieldGroupID      = "group_id"
	FieldGroupName    = "group_name"
	FieldFrequency    = "frequency"
	FieldTxnID        = "transaction_id"
	FieldTxnCount     = "transaction_count"
	FieldHandle       = "handle"
	FieldMerchant     = "merchant_pattern"
	FieldConfidence   = "confidence"
	FieldCandidates   = "candidates"
	FieldEligible     = "eligible"
	FieldNextDate     = "next_expected_date"
	FieldLastSeen     = "last_seen_date"
	FieldEventType    = "event_type"
	FieldCollaborator = "collaborator"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentCLI          = "cli"
	ComponentStorage      = "storage"
	ComponentAMQP         = "amqp"
	ComponentCache        = "cache"
	ComponentDetector     = "detector"
	ComponentMaterializer = "materializer"
	ComponentMembership   = "membership"
	ComponentRegistry     = "registry"
	ComponentPatterns     = "patterns"
)

// Operations defines standard operation names
const (
	OpCreate      = "create"
	OpRead        = "read"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpList        = "list"
	OpDetect      = "detect"
	OpMaterialize = "materialize"
	OpMark        = "mark"
	OpUnmark      = "unmark"
	OpPublish     = "publish"
	OpStartup     = "startup"
	OpShutdown    = "shutdown"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeCollaborator  = "collaborator_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category
func (f LogFields) WithErrorType(errorType string) LogFields {
	f[FieldErrorType] = errorType
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithGroup adds recurring group fields
func (f LogFields) WithGroup(id, name, frequency string) LogFields {
	f[FieldGroupID] = id
	if name != "" {
		f[FieldGroupName] = name
	}
	if frequency != "" {
		f[FieldFrequency] = frequency
	}
	return f
}

// WithTransaction adds the transaction id
func (f LogFields) WithTransaction(id string) LogFields {
	f[FieldTxnID] = id
	return f
}

// WithCandidate adds detection candidate fields
func (f LogFields) WithCandidate(handle, merchantPattern string, confidence float64) LogFields {
	f[FieldHandle] = handle
	f[FieldMerchant] = merchantPattern
	f[FieldConfidence] = confidence
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
