package vrender

import (
	"arrayvis/internal/models"
)

// CacheBuilder advances the caches of a set of eyes one unit at a time.
// Step has the signature of a background.Step.
type CacheBuilder struct {
	c     *Context
	eyes  []models.Eye
	fired bool
}

// NewCacheBuilder creates a builder for eyes, or for the cyclops eye when
// none are given
func (c *Context) NewCacheBuilder(eyes ...models.Eye) *CacheBuilder {
	if len(eyes) == 0 {
		eyes = []models.Eye{models.Cyclops}
	}
	return &CacheBuilder{c: c, eyes: append([]models.Eye(nil), eyes...)}
}

// Step does one unit of work on the first eye that is not fully cached
// and reports whether work remains. Eyes that cannot be prepared, for
// want of a cube or image size, are skipped. When every eye is done the
// OnCachesComputed hooks run once.
func (b *CacheBuilder) Step() bool {
	c := b.c
	c.mu.Lock()
	pool, smooth := c.threads(), c.smooth
	for _, eye := range b.eyes {
		e, err := c.prepare(eye)
		if err != nil {
			if Verbose {
				logf("skipping %s eye: %v", eye, err)
			}
			continue
		}
		if e.step(pool, smooth) {
			c.mu.Unlock()
			return true
		}
	}
	var hooks []func([]models.Eye)
	if !b.fired {
		b.fired = true
		hooks = append(hooks, c.computedHooks...)
	}
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(b.eyes)
	}
	return false
}

// ComputeCaches builds the caches of eyes to completion
func (c *Context) ComputeCaches(eyes ...models.Eye) error {
	c.mu.Lock()
	for _, eye := range eyes {
		if _, err := c.prepare(eye); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.mu.Unlock()
	b := c.NewCacheBuilder(eyes...)
	for b.Step() {
	}
	return nil
}

// ScheduleCaches hands a cache builder for eyes to the scheduler, or
// builds the caches inline when the context has none
func (c *Context) ScheduleCaches(eyes ...models.Eye) error {
	c.mu.Lock()
	s := c.scheduler
	c.mu.Unlock()
	if s == nil {
		return c.ComputeCaches(eyes...)
	}
	name := "vrender-caches"
	if len(eyes) == 2 && eyes[0] == models.Left && eyes[1] == models.Right {
		name = "vrender-stereo"
	}
	s.Schedule(name, c.NewCacheBuilder(eyes...).Step)
	return nil
}
