//go:build !linux && !darwin && !windows

package trash

func defaultRoot() string { return "" }

func (b *Bin) put(string) (Item, error) { return Item{}, ErrUnsupported }
func (b *Bin) list() ([]Item, error)    { return nil, ErrUnsupported }
func (b *Bin) restore(Item) error       { return ErrUnsupported }
func (b *Bin) empty() error             { return ErrUnsupported }

func displayName() string {
	return "Recycle Bin"
}
