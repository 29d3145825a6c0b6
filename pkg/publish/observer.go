package publish

import "time"

// Observer receives cache activity. Implementations must be safe for concurrent use.
type Observer interface {
	CacheHit(publisher string)
	CacheMiss(publisher string)
	Published(publisher string, err error)
	Swept(evicted int, took time.Duration)
	Persisted(entries int, err error)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string) {}

func (nopObserver) CacheMiss(string) {}

func (nopObserver) Published(string, error) {}

func (nopObserver) Swept(int, time.Duration) {}

func (nopObserver) Persisted(int, error) {}
