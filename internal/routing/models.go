package routing

// Routing sources record which rule produced an owner assignment. They are
// the audit trail for every decision, successful or not.
const (
	SourceCustomerAssignee   = "customer_assignee"
	SourceAutoRouting        = "auto_routing"
	SourceUnresolvedCustomer = "unresolved_customer"
	SourceMarketPrimary      = "market_primary"
	SourceMarketBackup       = "market_backup"
	SourceUnresolvedMarket   = "unresolved_market"
)

// Advisory tags applied when a ticket needs human follow-up. An unresolved
// ticket is never dropped; it is tagged and escalated instead.
const (
	TagNeedsCXRouting  = "Needs CX Routing"
	TagNeedsOpsRouting = "Needs Ops Routing"
)

// Stages for decision errors.
const (
	StageCX     = "cx"
	StageMarket = "market"
	StageOps    = "ops"
)

// StageError is a single non-fatal routing failure. Routing errors are
// expected and aggregated, not thrown.
type StageError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Source explains which rule produced each owner.
type Source struct {
	CX  string `json:"cx,omitempty"`
	Ops string `json:"ops,omitempty"`
}

// Decision is the computed routing outcome for one ticket. Owner ids of
// zero mean "not resolved".
type Decision struct {
	TaskID      string       `json:"task_id"`
	CustomerKey string       `json:"customer_key,omitempty"`
	Market      string       `json:"market,omitempty"`
	CXOwner     int64        `json:"cx_owner,omitempty"`
	OpsOwner    int64        `json:"ops_owner,omitempty"`
	Source      Source       `json:"routing_source"`
	Tags        []string     `json:"tags,omitempty"`
	Errors      []StageError `json:"errors,omitempty"`
}

// Owners lists every resolved owner id, CX first.
func (d *Decision) Owners() []int64 {
	var owners []int64
	if d.CXOwner != 0 {
		owners = append(owners, d.CXOwner)
	}
	if d.OpsOwner != 0 && d.OpsOwner != d.CXOwner {
		owners = append(owners, d.OpsOwner)
	}
	return owners
}

func (d *Decision) addError(stage, message string) {
	d.Errors = append(d.Errors, StageError{Stage: stage, Message: message})
}

func (d *Decision) addTag(tag string) {
	for _, t := range d.Tags {
		if t == tag {
			return
		}
	}
	d.Tags = append(d.Tags, tag)
}
