package models

// ImageVariantSet tracks one uploaded photo as a logical unit: the original
// object key plus its resized derivative keys. Names holds only the derived
// widths, smallest to largest; Names[0] is the thumbnail/default source.
// The original is referenced exclusively by SourceName.
type ImageVariantSet struct {
	SourceName string   `bson:"sourceName" json:"sourceName"`
	Names      []string `bson:"names" json:"names"`
}

// AllNames returns every blob key belonging to the set, original included.
// Used by the deletion cascade.
func (s ImageVariantSet) AllNames() []string {
	keys := make([]string, 0, len(s.Names)+1)
	keys = append(keys, s.SourceName)
	keys = append(keys, s.Names...)
	return keys
}
