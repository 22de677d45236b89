package card

// imagePreference orders the catalog's image variants from most to least useful for print layout.
var imagePreference = []string{"png", "large", "normal", "small"}

// ImageURLs returns one preferred image URL per face for multi-face records
// with per-face art, otherwise the record's single preferred image.
func ImageURLs(r Record) []string {
	if r.IsMultiFace() {
		var urls []string
		for _, face := range r.Faces {
			if url := preferredImage(face.ImageURIs); url != "" {
				urls = append(urls, url)
			}
		}
		if len(urls) > 0 {
			return urls
		}
	}
	if url := preferredImage(r.ImageURIs); url != "" {
		return []string{url}
	}
	return []string{}
}

func preferredImage(uris map[string]string) string {
	for _, key := range imagePreference {
		if url := uris[key]; url != "" {
			return url
		}
	}
	return ""
}
