package session

// correlationIndex maps provider message ids to the single session that
// produced them. It is not safe for concurrent use; Store guards it.
type correlationIndex struct {
	owners map[string]string // provider message id → session id
}

func newCorrelationIndex() correlationIndex {
	return correlationIndex{owners: make(map[string]string)}
}

// record reports whether the entry is new.
func (c correlationIndex) record(providerMessageID, sessionID string) (bool, error) {
	if owner, ok := c.owners[providerMessageID]; ok {
		if owner != sessionID {
			return false, ErrCorrelationConflict
		}
		return false, nil
	}
	c.owners[providerMessageID] = sessionID
	return true, nil
}

func (c correlationIndex) resolve(providerMessageID string) (string, bool) {
	sid, ok := c.owners[providerMessageID]
	return sid, ok
}

func (c correlationIndex) remove(providerMessageID, sessionID string) {
	if c.owners[providerMessageID] == sessionID {
		delete(c.owners, providerMessageID)
	}
}

func (c correlationIndex) len() int { return len(c.owners) }
