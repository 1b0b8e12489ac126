package hermes

const (
	StreamName   = "FOREMAN_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

func SubjectDelegationQueued(id string) string    { return "swarm.delegation." + id + ".queued" }
func SubjectDelegationStarted(id string) string   { return "swarm.delegation." + id + ".started" }
func SubjectDelegationCompleted(id string) string { return "swarm.delegation." + id + ".completed" }
func SubjectDelegationFailed(id string) string    { return "swarm.delegation." + id + ".failed" }
func SubjectDelegationRetried(id string) string   { return "swarm.delegation." + id + ".retried" }
func SubjectDelegationCancelled(id string) string { return "swarm.delegation." + id + ".cancelled" }

func SubjectTicketOpened(id string) string       { return "swarm.ticket." + id + ".opened" }
func SubjectTicketUpdated(id string) string      { return "swarm.ticket." + id + ".updated" }
func SubjectTicketTransitioned(id string) string { return "swarm.ticket." + id + ".transitioned" }

func SubjectViolationRecorded(id string) string { return "swarm.violation." + id + ".recorded" }
