package kis

import (
	"strings"

	"github.com/wonny/stockscanner/internal/contracts"
)

// Directory is an in-memory instrument list for name and code lookups
type Directory struct {
	instruments []contracts.Instrument
	byCode      map[string]contracts.Instrument
}

// NewDirectory indexes instruments; order decides substring match priority
func NewDirectory(instruments []contracts.Instrument) *Directory {
	byCode := make(map[string]contracts.Instrument, len(instruments))
	for _, inst := range instruments {
		if _, dup := byCode[inst.Code]; !dup {
			byCode[inst.Code] = inst
		}
	}
	return &Directory{instruments: instruments, byCode: byCode}
}

// Len is the number of indexed instruments
func (d *Directory) Len() int {
	return len(d.instruments)
}

// Find resolves a 6-digit code exactly, then an exact name, then the first
// name containing query.
func (d *Directory) Find(query string) (contracts.Instrument, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return contracts.Instrument{}, false
	}

	if isStockCode(query) {
		inst, ok := d.byCode[query]
		return inst, ok
	}

	for _, inst := range d.instruments {
		if inst.Name == query {
			return inst, true
		}
	}
	for _, inst := range d.instruments {
		if strings.Contains(inst.Name, query) {
			return inst, true
		}
	}
	return contracts.Instrument{}, false
}

// Search returns up to limit instruments whose name or code contains query
func (d *Directory) Search(query string, limit int) []contracts.Instrument {
	query = strings.TrimSpace(query)
	out := make([]contracts.Instrument, 0)
	if query == "" {
		return out
	}
	for _, inst := range d.instruments {
		if strings.Contains(inst.Name, query) || strings.HasPrefix(inst.Code, query) {
			out = append(out, inst)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}
