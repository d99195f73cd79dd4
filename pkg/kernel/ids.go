package kernel

// UnitID identifies a registered dispatch unit.
type UnitID string

func NewUnitID(id string) UnitID { return UnitID(id) }
func (u UnitID) String() string  { return string(u) }
func (u UnitID) IsEmpty() bool   { return string(u) == "" }

// JobID identifies a single queued message job.
type JobID string

func NewJobID(id string) JobID { return JobID(id) }
func (j JobID) String() string { return string(j) }
func (j JobID) IsEmpty() bool  { return string(j) == "" }
