package ledger

import "strings"

// Labels are compact "value:tag" strings attached to ledger records for
// cross-referencing. An intent carries one label per linked anchor, e.g.
// "QR-123-abc:qr-code". The merchant-txid tag is reserved for merchant
// transaction back-references and is never an anchor handle.
const ReservedMerchantTxIDTag = "merchant-txid"

func FormatLabel(value, tag string) string {
	return value + ":" + tag
}

// ParseLabel splits a label at the first colon. Labels without a colon are
// treated as a bare value with an empty tag.
func ParseLabel(label string) (value, tag string) {
	if i := strings.Index(label, ":"); i >= 0 {
		return label[:i], label[i+1:]
	}
	return label, ""
}

// AnchorHandlesFromLabels extracts the anchor handles referenced by a label
// set, skipping reserved merchant-txid labels and deduplicating.
func AnchorHandlesFromLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	handles := make([]string, 0, len(labels))
	for _, label := range labels {
		value, tag := ParseLabel(label)
		if value == "" || tag == ReservedMerchantTxIDTag {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		handles = append(handles, value)
	}
	return handles
}
