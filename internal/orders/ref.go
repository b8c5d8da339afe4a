package orders

import (
	"encoding/base32"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	refPrefix       = "ORD"
	refSuffixLength = 6
	partitionLayout = "2006-01"
)

var crockford = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// NewRef returns a human-shareable order reference such as ORD-20261018-7K3Q9X.
func NewRef(now time.Time) string {
	id := uuid.New()
	suffix := crockford.EncodeToString(id[:])[:refSuffixLength]
	return strings.Join([]string{refPrefix, now.UTC().Format("20060102"), suffix}, "-")
}

// PartitionFor returns the coarse YYYY-MM partition for a creation time.
func PartitionFor(createdAt time.Time) string {
	return createdAt.UTC().Format(partitionLayout)
}
