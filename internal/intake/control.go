package intake

// Control is the upload widget's state as seen by its owner: the current
// selection and whether interaction is allowed.
type Control struct {
	Policy   *Policy
	Selected *File
	Disabled bool
}

// Offer passes an accepted file to onSelect. Rejected files and offers made
// while disabled leave the selection alone and never call onSelect.
func (c *Control) Offer(f *File, source Source, onSelect func(*File)) bool {
	if c.Disabled {
		return false
	}
	if !c.Policy.Accept(f, source) {
		return false
	}
	onSelect(f)
	return true
}

// OfferMany handles a drop carrying several files; the first image wins
func (c *Control) OfferMany(files []*File, source Source, onSelect func(*File)) bool {
	if c.Disabled {
		return false
	}
	f := c.Policy.FirstImage(files, source)
	if f == nil {
		return false
	}
	onSelect(f)
	return true
}

// Clear asks the owner to drop the selection
func (c *Control) Clear(onSelect func(*File)) bool {
	if c.Disabled || c.Selected == nil {
		return false
	}
	onSelect(nil)
	return true
}
