package domain

// Dependency conditions used when chaining sentinel jobs onto the primary
// scheduler job.
const (
	DependencyAfterOK    = "afterok"
	DependencyAfterNotOK = "afternotok"
)
