package models

// Collections holds the mutable status collections. Archived records live in
// monthly partitions managed by the store.
type Collections struct {
	Pending   []Event `json:"pending"`
	Published []Event `json:"published"`
	Rejected  []Event `json:"rejected"`
}

// Of returns a pointer to the slice holding events with the given status, or
// nil for archived.
func (c *Collections) Of(status EventStatus) *[]Event {
	switch status {
	case EventStatusPending:
		return &c.Pending
	case EventStatusPublished:
		return &c.Published
	case EventStatusRejected:
		return &c.Rejected
	}
	return nil
}

// Find looks up an event by ID across the mutable collections.
func (c *Collections) Find(id string) (*Event, EventStatus, bool) {
	for _, status := range []EventStatus{EventStatusPending, EventStatusPublished, EventStatusRejected} {
		list := c.Of(status)
		for i := range *list {
			if (*list)[i].ID == id {
				return &(*list)[i], status, true
			}
		}
	}
	return nil, "", false
}

// Move relocates the event with the given ID from one collection to another,
// updating its status. It reports false if the event is not in from.
func (c *Collections) Move(id string, from, to EventStatus) (*Event, bool) {
	src := c.Of(from)
	dst := c.Of(to)
	if src == nil || dst == nil {
		return nil, false
	}
	for i := range *src {
		if (*src)[i].ID != id {
			continue
		}
		e := (*src)[i]
		*src = append((*src)[:i], (*src)[i+1:]...)
		e.Status = to
		*dst = append(*dst, e)
		return &(*dst)[len(*dst)-1], true
	}
	return nil, false
}

// Remove deletes the event with the given ID from the collection of status.
func (c *Collections) Remove(id string, status EventStatus) bool {
	list := c.Of(status)
	if list == nil {
		return false
	}
	for i := range *list {
		if (*list)[i].ID == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

// Sizes returns the number of events per collection.
func (c *Collections) Sizes() map[EventStatus]int {
	return map[EventStatus]int{
		EventStatusPending:   len(c.Pending),
		EventStatusPublished: len(c.Published),
		EventStatusRejected:  len(c.Rejected),
	}
}
