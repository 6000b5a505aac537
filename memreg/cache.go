package memreg

import (
	"github.com/unifabric/fabric-base/utils/wlru"
)

// attachment is a cached domain-level unpack shared by outstanding keys.
type attachment struct {
	under  *Rkey // the domain's own attach
	refs   int
	doomed bool // evicted from the cache while keys are outstanding
}

func (a *attachment) unref() {
	a.refs--
	if a.refs == 0 && a.doomed {
		_ = a.under.Release()
	}
}

// RkeyCache caches unpacked remote keys by their packed representation, so
// repeated transfers to the same remote segment skip the domain attach. Cache
// weight is the packed key size, which varies by domain.
type RkeyCache struct {
	domain Domain
	cache  *wlru.Cache
}

// NewRkeyCache creates a cache over the domain with the given total weight
// and entry count limits.
func NewRkeyCache(domain Domain, maxWeight uint, maxSize int) (*RkeyCache, error) {
	c := &RkeyCache{
		domain: domain,
	}
	cache, err := wlru.NewWithEvict(maxWeight, maxSize, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

func (c *RkeyCache) onEvict(_ interface{}, value interface{}) {
	att := value.(*attachment)
	if att.refs == 0 {
		_ = att.under.Release()
	} else {
		att.doomed = true
	}
}

// Unpack returns a remote key for the packed representation, attaching
// through the domain on a cache miss. Every returned key must still be
// released exactly once.
func (c *RkeyCache) Unpack(packed []byte) (*Rkey, error) {
	var att *attachment
	if cached, ok := c.cache.Get(string(packed)); ok {
		att = cached.(*attachment)
	} else {
		under, err := c.domain.Unpack(packed)
		if err != nil {
			return nil, err
		}
		att = &attachment{under: under}
		c.cache.Add(string(packed), att, uint(len(packed)))
	}
	att.refs++
	return &Rkey{
		DomainID:  att.under.DomainID,
		SegmentID: att.under.SegmentID,
		Address:   att.under.Address,
		Length:    att.under.Length,
		mem:       att.under.mem,
		onRelease: func(*Rkey) { att.unref() },
	}, nil
}

// Purge drops all idle cached attachments.
func (c *RkeyCache) Purge() {
	c.cache.Purge()
}
