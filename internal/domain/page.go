package domain

// Page is the scraped form of one facility detail page: the visible text
// with script/style/head/title markup excluded, and the image URLs that
// looked like page content rather than chrome.
type Page struct {
	Text      string
	ImageURLs []string
}
