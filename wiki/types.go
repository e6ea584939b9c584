package wiki

// Limits for list-style tools
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
	MaxPrefixLimit     = 500
)

// ContentFormat selects what get-page and get-revision return.
type ContentFormat string

const (
	ContentSource            ContentFormat = "source"
	ContentHTML              ContentFormat = "html"
	ContentMetadata          ContentFormat = "metadata"
	ContentSourceAndMetadata ContentFormat = "sourceAndMetadata"
	ContentHTMLAndMetadata   ContentFormat = "htmlAndMetadata"
)

// ========== Search Types ==========

type SearchPageArgs struct {
	Query   string `json:"query" jsonschema:"required" jsonschema_description:"Search terms"`
	Limit   int    `json:"limit,omitempty" jsonschema_description:"Maximum number of search results to return (1-100)"`
	WikiURL string `json:"wikiUrl,omitempty" jsonschema_description:"Optional URL of the wiki to use for this request"`
}

type SearchPageResult struct {
	Query   string      `json:"query"`
	Wiki    string      `json:"wiki"`
	Pages   []SearchHit `json:"pages"`
	Message string      `json:"message,omitempty"`
}

type SearchHit struct {
	PageID       int64  `json:"page_id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Excerpt      string `json:"excerpt,omitempty"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

type SearchPageByPrefixArgs struct {
	Prefix    string `json:"prefix" jsonschema:"required" jsonschema_description:"Search prefix"`
	Limit     int    `json:"limit,omitempty" jsonschema_description:"Maximum number of results to return (1-500)"`
	Namespace *int   `json:"namespace,omitempty" jsonschema_description:"Namespace to search (0=main)"`
	WikiURL   string `json:"wikiUrl,omitempty" jsonschema_description:"Optional URL of the wiki to use for this request"`
}

type SearchPageByPrefixResult struct {
	Prefix  string   `json:"prefix"`
	Wiki    string   `json:"wiki"`
	Titles  []string `json:"titles"`
	Message string   `json:"message,omitempty"`
}

// ========== Page Types ==========

type GetPageArgs struct {
	Title   string `json:"title" jsonschema:"required" jsonschema_description:"Wiki page title"`
	Content string `json:"content,omitempty" jsonschema_description:"Format: source (default), html, metadata, sourceAndMetadata or htmlAndMetadata"`
	WikiURL string `json:"wikiUrl,omitempty" jsonschema_description:"Optional URL of the wiki to use for this request"`
}

type PageContent struct {
	Title    string        `json:"title"`
	Wiki     string        `json:"wiki"`
	Format   ContentFormat `json:"format"`
	Source   *string       `json:"source,omitempty"`
	HTML     *string       `json:"html,omitempty"`
	Metadata *PageMetadata `json:"metadata,omitempty"`
}

type PageMetadata struct {
	PageID                  int64  `json:"page_id"`
	Title                   string `json:"title"`
	LatestRevisionID        int64  `json:"latest_revision_id"`
	LatestRevisionTimestamp string `json:"latest_revision_timestamp"`
	ContentModel            string `json:"content_model"`
	License                 string `json:"license,omitempty"`
	HTMLURL                 string `json:"html_url,omitempty"`
	URL                     string `json:"url"`
}

// ========== History Types ==========

type GetPageHistoryArgs struct {
	Title     string `json:"title" jsonschema:"required" jsonschema_description:"Wiki page title"`
	OlderThan int64  `json:"olderThan,omitempty" jsonschema_description:"Return revisions older than this revision ID"`
	NewerThan int64  `json:"newerThan,omitempty" jsonschema_description:"Return revisions newer than this revision ID"`
	Filter    string `json:"filter,omitempty" jsonschema_description:"Only revisions with this tag: reverted, anonymous, bot or minor"`
	WikiURL   string `json:"wikiUrl,omitempty" jsonschema_description:"Optional URL of the wiki to use for this request"`
}

type PageHistoryResult struct {
	Title     string     `json:"title"`
	Wiki      string     `json:"wiki"`
	Revisions []Revision `json:"revisions"`
	Older     string     `json:"older,omitempty"`
	Newer     string     `json:"newer,omitempty"`
	Latest    string     `json:"latest,omitempty"`
	Message   string     `json:"message,omitempty"`
}

type Revision struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
	UserID    int64  `json:"user_id,omitempty"`
	Comment   string `json:"comment"`
	Size      int64  `json:"size"`
	Delta     int64  `json:"delta"`
	Minor     bool   `json:"minor,omitempty"`
}

type GetRevisionArgs struct {
	ID      int64  `json:"id" jsonschema:"required" jsonschema_description:"Revision ID"`
	Content string `json:"content,omitempty" jsonschema_description:"Format: source (default), html or metadata"`
	WikiURL string `json:"wikiUrl,omitempty" jsonschema_description:"Optional URL of the wiki to use for this request"`
}

type RevisionContent struct {
	Revision
	Wiki         string        `json:"wiki"`
	PageID       int64         `json:"page_id"`
	PageTitle    string        `json:"page_title"`
	ContentModel string        `json:"content_model,omitempty"`
	Format       ContentFormat `json:"format"`
	Source       *string       `json:"source,omitempty"`
	HTML         *string       `json:"html,omitempty"`
}

// ========== File Types ==========

type GetFileArgs struct {
	Title   string `json:"title" jsonschema:"required" jsonschema_description:"File title, with or without the File: prefix"`
	WikiURL string `json:"wikiUrl,omitempty" jsonschema_description:"Optional URL of the wiki to use for this request"`
}

type FileInfo struct {
	Title           string `json:"title"`
	Wiki            string `json:"wiki"`
	DescriptionURL  string `json:"file_description_url"`
	LatestTimestamp string `json:"latest_timestamp"`
	LatestUser      string `json:"latest_user"`
	MediaType       string `json:"mediatype,omitempty"`
	PreferredURL    string `json:"preferred_url,omitempty"`
	OriginalURL     string `json:"original_url,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	Size            int64  `json:"size,omitempty"`
}

// ========== Write Types ==========

type CreatePageArgs struct {
	Source       string `json:"source" jsonschema:"required" jsonschema_description:"Page content in the format given by contentModel"`
	Title        string `json:"title" jsonschema:"required" jsonschema_description:"Wiki page title"`
	Comment      string `json:"comment,omitempty" jsonschema_description:"Reason for creating the page"`
	ContentModel string `json:"contentModel,omitempty" jsonschema_description:"Content model of the page (default wikitext)"`
	WikiURL      string `json:"wikiUrl,omitempty" jsonschema_description:"Optional URL of the wiki to use for this request"`
}

type UpdatePageArgs struct {
	Title    string `json:"title" jsonschema:"required" jsonschema_description:"Wiki page title"`
	Source   string `json:"source" jsonschema:"required" jsonschema_description:"Page content in the same content model as the existing page"`
	LatestID int64  `json:"latestId" jsonschema:"required" jsonschema_description:"Revision ID the new source is based on"`
	Comment  string `json:"comment,omitempty" jsonschema_description:"Summary of the edit"`
	WikiURL  string `json:"wikiUrl,omitempty" jsonschema_description:"Optional URL of the wiki to use for this request"`
}

type DeletePageArgs struct {
	Title   string `json:"title" jsonschema:"required" jsonschema_description:"Wiki page title"`
	Comment string `json:"comment,omitempty" jsonschema_description:"Reason for deleting the page"`
	WikiURL string `json:"wikiUrl,omitempty" jsonschema_description:"Optional URL of the wiki to use for this request"`
}

type UploadFileArgs struct {
	LocalFilePath  string `json:"localFilePath" jsonschema:"required" jsonschema_description:"Absolute path of the file on the local filesystem"`
	WikiFilename   string `json:"wikiFilename" jsonschema:"required" jsonschema_description:"File name on the wiki, e.g. MyImage.png or File:MyImage.png"`
	Comment        string `json:"comment,omitempty" jsonschema_description:"Summary for the upload log entry"`
	IgnoreWarnings bool   `json:"ignoreWarnings,omitempty" jsonschema_description:"Ignore warnings such as overwriting an existing file"`
	WikiURL        string `json:"wikiUrl,omitempty" jsonschema_description:"Optional URL of the wiki to use for this request"`
}

// ========== Wiki Management Types ==========

type AddWikiArgs struct {
	WikiURL string `json:"wikiUrl" jsonschema:"required" jsonschema_description:"Any URL from the target wiki, e.g. https://en.wikipedia.org/wiki/Main_Page"`
}

type RemoveWikiArgs struct {
	URI string `json:"uri" jsonschema:"required" jsonschema_description:"MCP resource URI of the wiki to remove, e.g. mcp://wikis/en.wikipedia.org"`
}

type SetWikiArgs struct {
	WikiURL string `json:"wikiUrl" jsonschema:"required" jsonschema_description:"Any URL from the target wiki, e.g. https://en.wikipedia.org/wiki/Main_Page"`
}

type WikiResult struct {
	Key      string `json:"key"`
	URI      string `json:"uri"`
	Sitename string `json:"sitename"`
	Server   string `json:"server"`
	Current  bool   `json:"current"`
	Message  string `json:"message"`
}
