package main

// Progress is a saturating step counter. The calculator advances it after
// every fetch attempt; a consumer observes steps to render "N of M done".
// It is advisory only: stepping past the nominal total is a no-op, as is
// stepping a nil *Progress, so over- or under-counting never causes failure.
type Progress struct {
	done   int
	total  int
	notify func(done, total int)
}

// NewProgress returns a counter with a nominal budget of total steps.
// notify may be nil.
func NewProgress(total int, notify func(done, total int)) *Progress {
	return &Progress{total: total, notify: notify}
}

// Step records one completed unit of work.
func (p *Progress) Step() {
	if p == nil {
		return
	}
	if p.done < p.total {
		p.done++
	}
	if p.notify != nil {
		p.notify(p.done, p.total)
	}
}

// Finish saturates the counter.
func (p *Progress) Finish() {
	if p == nil {
		return
	}
	p.done = p.total
	if p.notify != nil {
		p.notify(p.done, p.total)
	}
}

// Done reports completed steps.
func (p *Progress) Done() int {
	if p == nil {
		return 0
	}
	return p.done
}

// Total reports the nominal step budget.
func (p *Progress) Total() int {
	if p == nil {
		return 0
	}
	return p.total
}
