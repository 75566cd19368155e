package wallpaper

import "fmt"

// SourceKind tags the media a wallpaper displays
type SourceKind string

const (
	KindPicture       SourceKind = "Picture"
	KindVideo         SourceKind = "Video"
	KindLocalWebPage  SourceKind = "LocalWebPage"
	KindRemoteWebPage SourceKind = "RemoteWebPage"
	KindYouTube       SourceKind = "YouTube"
)

// SourceKinds lists every media kind in display order.
func SourceKinds() []SourceKind {
	return []SourceKind{KindPicture, KindVideo, KindLocalWebPage, KindRemoteWebPage, KindYouTube}
}

// Source is the closed set of media a wallpaper can show. Every variant is a
// comparable struct, so two sources are equal exactly when == says so: same
// variant and same fields.
type Source interface {
	Kind() SourceKind
	// Location is the file path or URL the variant points at.
	Location() string
	isSource()
}

// Picture is a still image on the local filesystem
type Picture struct {
	Path string
}

// Video is a video file on the local filesystem
type Video struct {
	Path string
}

// LocalWebPage is an HTML document on the local filesystem
type LocalWebPage struct {
	Path string
}

// RemoteWebPage is a page loaded over the network
type RemoteWebPage struct {
	URL string
}

// YouTube is a video embedded from YouTube
type YouTube struct {
	URL string
}

func (Picture) Kind() SourceKind       { return KindPicture }
func (Video) Kind() SourceKind         { return KindVideo }
func (LocalWebPage) Kind() SourceKind  { return KindLocalWebPage }
func (RemoteWebPage) Kind() SourceKind { return KindRemoteWebPage }
func (YouTube) Kind() SourceKind       { return KindYouTube }

func (s Picture) Location() string       { return s.Path }
func (s Video) Location() string         { return s.Path }
func (s LocalWebPage) Location() string  { return s.Path }
func (s RemoteWebPage) Location() string { return s.URL }
func (s YouTube) Location() string       { return s.URL }

func (Picture) isSource()       {}
func (Video) isSource()         {}
func (LocalWebPage) isSource()  {}
func (RemoteWebPage) isSource() {}
func (YouTube) isSource()       {}

// NewSource builds the variant for kind pointing at location
func NewSource(kind SourceKind, location string) (Source, error) {
	switch kind {
	case KindPicture:
		return Picture{Path: location}, nil
	case KindVideo:
		return Video{Path: location}, nil
	case KindLocalWebPage:
		return LocalWebPage{Path: location}, nil
	case KindRemoteWebPage:
		return RemoteWebPage{URL: location}, nil
	case KindYouTube:
		return YouTube{URL: location}, nil
	default:
		return nil, fmt.Errorf("unknown source type: %q", kind)
	}
}

// IsLocal reports whether the source reads from the local filesystem
func IsLocal(s Source) bool {
	switch s.(type) {
	case Picture, Video, LocalWebPage:
		return true
	default:
		return false
	}
}
