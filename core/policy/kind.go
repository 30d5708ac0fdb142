package policy

// Kind names a top-level policy list within a document.
type Kind string

const (
	KindScanExecution Kind = "scan_execution_policy"
	KindScanResult    Kind = "scan_result_policy"
	KindApproval      Kind = "approval_policy"
)

// Kinds lists every document kind in serialization order.
func Kinds() []Kind {
	return []Kind{KindScanExecution, KindScanResult, KindApproval}
}

// Valid reports whether k names a known document kind.
func (k Kind) Valid() bool {
	switch k {
	case KindScanExecution, KindScanResult, KindApproval:
		return true
	}
	return false
}

// InResultFamily reports whether k belongs to the result-policy family.
// scan_result_policy is the legacy type, approval_policy its successor; the
// two share a name-uniqueness namespace because one migrates into the other.
func (k Kind) InResultFamily() bool {
	return k == KindScanResult || k == KindApproval
}

// Family returns the kinds sharing a uniqueness namespace with k, in lookup
// order. scan_result_policy is searched before approval_policy; same-named
// policies collide with the legacy list first.
func (k Kind) Family() []Kind {
	if k.InResultFamily() {
		return []Kind{KindScanResult, KindApproval}
	}
	return []Kind{k}
}
