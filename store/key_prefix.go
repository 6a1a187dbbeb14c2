package store

// Declare database key prefix for objects. Every prefix ends with ':' and
// everything after it is binary.
const (
	PrefixBlock       = "blk:"
	PrefixHeader      = "hdr:"
	PrefixChainLength = "len:"
	PrefixBlockMeta   = "blk_meta:"

	BlockMetaKeyTip    = "tip"
	BlockMetaKeyBlock0 = "block0"
)
