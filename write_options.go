package jsondelta

// RecoverStrategy decides what happens when a create collides with an existing key
type RecoverStrategy string

const (
	// RecoverNever fails the create with create_duplicated_key
	RecoverNever RecoverStrategy = "never"
	// RecoverIfIdentical skips the create if replaying the later actions from its data reaches a
	// record the existing one already contains
	RecoverIfIdentical RecoverStrategy = "if-identical"
	// RecoverAlwaysUpdate lets the later create replace the existing record
	RecoverAlwaysUpdate RecoverStrategy = "always-update"
)

// DefaultRecoverySimulationLimit bounds the simulated action applications per recovered create
const DefaultRecoverySimulationLimit = 1000

// EngineOpt configures a WriteEngine
type EngineOpt func(e *WriteEngine)

// WithLogger sets the engine's logger
func WithLogger(logger Logger) EngineOpt {
	return func(e *WriteEngine) {
		e.logger = logger
	}
}

type writeOptions struct {
	user                   *User
	allowPartialSuccess    bool
	recoverDuplicateCreate RecoverStrategy
	recoveryLimit          int
	ownershipCheck         OwnershipCheck
}

// WriteOpt configures a single WriteEngine.Apply call
type WriteOpt func(o *writeOptions)

// WithUser sets the user permissions are checked against
func WithUser(user *User) WriteOpt {
	return func(o *writeOptions) {
		o.user = user
	}
}

// WithAllowPartialSuccess commits every action that did not fail even if others did
func WithAllowPartialSuccess(allow bool) WriteOpt {
	return func(o *writeOptions) {
		o.allowPartialSuccess = allow
	}
}

// WithRecoverDuplicateCreate sets the duplicate create recovery strategy (default RecoverNever)
func WithRecoverDuplicateCreate(strategy RecoverStrategy) WriteOpt {
	return func(o *writeOptions) {
		o.recoverDuplicateCreate = strategy
	}
}

// WithRecoverySimulationLimit bounds the simulated action applications per recovered create.
// A create whose simulation exceeds the limit is not recovered.
func WithRecoverySimulationLimit(limit int) WriteOpt {
	return func(o *writeOptions) {
		o.recoveryLimit = limit
	}
}

// WithOwnershipCheck replaces the DDL permission rules with a custom check
func WithOwnershipCheck(check OwnershipCheck) WriteOpt {
	return func(o *writeOptions) {
		o.ownershipCheck = check
	}
}

func newWriteOptions(opts []WriteOpt) *writeOptions {
	o := &writeOptions{
		recoverDuplicateCreate: RecoverNever,
		recoveryLimit:          DefaultRecoverySimulationLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
