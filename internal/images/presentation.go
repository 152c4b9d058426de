package images

import (
	"fmt"
	"strings"

	"github.com/generally23/hlguinee/internal/models"
)

// ImageView is the client-facing shape of one stored rendition set: a
// default src plus a responsive srcset over the resized renditions.
type ImageView struct {
	SourceName string `json:"sourceName"`
	Src        string `json:"src"`
	Srcset     string `json:"srcset"`
}

// FormatImages renders stored rendition sets into URLs under baseURL. The
// smallest rendition is the default src; sets persisted before resizing
// existed fall back to their source blob.
func FormatImages(sets []models.ImageVariantSet, baseURL string) []ImageView {
	baseURL = strings.TrimSuffix(baseURL, "/") + "/"
	views := make([]ImageView, 0, len(sets))
	for _, set := range sets {
		view := ImageView{SourceName: set.SourceName}
		if len(set.Names) == 0 {
			view.Src = baseURL + set.SourceName
			views = append(views, view)
			continue
		}
		view.Src = baseURL + set.Names[0]

		entries := make([]string, 0, len(set.Names))
		for _, name := range set.Names {
			entries = append(entries, fmt.Sprintf("%s%s %sw", baseURL, name, WidthToken(name)))
		}
		view.Srcset = strings.Join(entries, ", ")
		views = append(views, view)
	}
	return views
}
