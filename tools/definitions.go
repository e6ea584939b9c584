package tools

// AllTools contains all tool specifications for the MediaWiki MCP server.
// Tools are organized by category for easier maintenance.
// Tool descriptions follow a structured format for optimal LLM tool selection:
// - USE WHEN: Natural language triggers
// - NOT FOR: Disambiguation from similar tools
// - PARAMETERS: Key arguments with defaults
// - RETURNS: What the tool returns
var AllTools = []ToolSpec{
	// ==========================================================================
	// SEARCH TOOLS
	// ==========================================================================
	{
		Name:     "search-page",
		Method:   "SearchPage",
		Title:    "Search page",
		Category: "search",
		Description: `Search wiki page titles and contents for the provided search terms, and return matching pages.

USE WHEN: User asks "find pages about X", "where is X documented", "search the wiki for X".

NOT FOR: Listing titles that start with a known prefix (use search-page-by-prefix).

PARAMETERS:
- query: Search terms (required)
- limit: Max results, 1-100 (default 10)
- wikiUrl: Any URL of another wiki to search instead of the current one (optional)

RETURNS: Page IDs, titles, descriptions, excerpts, page URLs and thumbnail URLs.`,
		ReadOnly:   true,
		Idempotent: true,
		OpenWorld:  true,
	},
	{
		Name:     "search-page-by-prefix",
		Method:   "SearchPageByPrefix",
		Title:    "Search page by prefix",
		Category: "search",
		Description: `Perform a prefix search for page titles.

USE WHEN: User asks "list pages starting with X", "which subpages does X have".

NOT FOR: Full-text search (use search-page).

PARAMETERS:
- prefix: Title prefix (required)
- limit: Max results, 1-500 (optional)
- namespace: Namespace ID, 0 = main (optional)
- wikiUrl: Any URL of another wiki (optional)

RETURNS: Matching page titles.`,
		ReadOnly:   true,
		Idempotent: true,
		OpenWorld:  true,
	},

	// ==========================================================================
	// READ TOOLS
	// ==========================================================================
	{
		Name:     "get-page",
		Method:   "GetPage",
		Title:    "Get page",
		Category: "read",
		Description: `Return a wiki page. Use content=source for source text (e.g. wikitext) or content=html for HTML to get just the page content.

USE WHEN: User asks "show me page X", "what does the X page say", or before editing a page.

NOT FOR: Revision lists (use get-page-history) or file metadata (use get-file).

PARAMETERS:
- title: Page title (required)
- content: source (default), html, metadata, sourceAndMetadata or htmlAndMetadata. Use the *AndMetadata formats only when page ID, latest revision or license are needed.
- wikiUrl: Any URL of another wiki (optional)

RETURNS: Page content in the requested format; metadata includes latest revision ID for update-page.`,
		ReadOnly:   true,
		Idempotent: true,
		OpenWorld:  true,
	},
	{
		Name:     "get-page-history",
		Method:   "GetPageHistory",
		Title:    "Get page history",
		Category: "read",
		Description: `Return the latest revisions of a wiki page in segments of 20, newest first.

USE WHEN: User asks "who changed X", "recent edits to X", "history of page X".

NOT FOR: Reading one revision's content (use get-revision).

PARAMETERS:
- title: Page title (required)
- olderThan: Revision ID; return older revisions (optional)
- newerThan: Revision ID; return newer revisions (optional, not with olderThan)
- filter: reverted, anonymous, bot or minor (optional)
- wikiUrl: Any URL of another wiki (optional)

RETURNS: Revisions with ID, timestamp, user, comment, size and delta, plus routes for the older, newer and latest segments.`,
		ReadOnly:   true,
		Idempotent: true,
		OpenWorld:  true,
	},
	{
		Name:     "get-revision",
		Method:   "GetRevision",
		Title:    "Get revision",
		Category: "read",
		Description: `Return a single revision of a page.

USE WHEN: User asks "what did revision N contain", "show the old version".

NOT FOR: The current page (use get-page).

PARAMETERS:
- id: Revision ID (required)
- content: source (default), html or metadata
- wikiUrl: Any URL of another wiki (optional)

RETURNS: Revision metadata with the page it belongs to and its source or HTML.`,
		ReadOnly:   true,
		Idempotent: true,
		OpenWorld:  true,
	},
	{
		Name:     "get-file",
		Method:   "GetFile",
		Title:    "Get file",
		Category: "read",
		Description: `Return information about a file, including links to download it in thumbnail, preview and original formats.

USE WHEN: User asks "get the image X", "where can I download file X".

PARAMETERS:
- title: File title, with or without "File:" (required)
- wikiUrl: Any URL of another wiki (optional)

RETURNS: Description page URL, latest upload time and user, media type, size and download URLs.`,
		ReadOnly:   true,
		Idempotent: true,
		OpenWorld:  true,
	},

	// ==========================================================================
	// WRITE TOOLS
	// ==========================================================================
	{
		Name:     "create-page",
		Method:   "CreatePage",
		Title:    "Create page",
		Category: "write",
		Description: `Create a wiki page with the provided content. Requires a configured credential.

USE WHEN: User says "create a page called X", "add a new article".

NOT FOR: Changing an existing page (use update-page).

PARAMETERS:
- title: Page title (required)
- source: Page content in the given content model (required)
- comment: Edit summary (default "Created via MediaWiki MCP Server")
- contentModel: Content model (default wikitext)
- wikiUrl: Any URL of another wiki (optional)

RETURNS: Page ID, revision ID, page URL and the protocol that performed the write (rest or legacy).`,
		ReadOnly:    false,
		Destructive: false,
		Idempotent:  false,
		OpenWorld:   true,
	},
	{
		Name:     "update-page",
		Method:   "UpdatePage",
		Title:    "Update page",
		Category: "write",
		Description: `Replace the content of an existing wiki page. Requires a configured credential.

USE WHEN: User says "edit page X", "change the text of X", "fix the typo on X".

NOT FOR: New pages (use create-page).

PARAMETERS:
- title: Page title (required)
- source: New page content in the same content model (required)
- latestId: Revision ID the new content is based on, from get-page metadata (required)
- comment: Edit summary (default "Updated via MediaWiki MCP Server")
- wikiUrl: Any URL of another wiki (optional)

RETURNS: New revision ID, page URL and the protocol that performed the write.

NOTE: Fails with an edit conflict if latestId is no longer the latest revision.`,
		ReadOnly:    false,
		Destructive: true,
		Idempotent:  false,
		OpenWorld:   true,
	},
	{
		Name:     "delete-page",
		Method:   "DeletePage",
		Title:    "Delete page",
		Category: "write",
		Description: `Delete a wiki page. Requires a credential with delete rights.

USE WHEN: User says "delete page X", "remove the X article".

PARAMETERS:
- title: Page title (required)
- comment: Reason for deletion (default "Deleted via MediaWiki MCP Server")
- wikiUrl: Any URL of another wiki (optional)

RETURNS: Deleted title, reason and log ID.`,
		ReadOnly:    false,
		Destructive: true,
		Idempotent:  false,
		OpenWorld:   true,
	},
	{
		Name:     "upload-file",
		Method:   "UploadFile",
		Title:    "Upload file",
		Category: "write",
		Description: `Upload a file from the local filesystem to the wiki. Requires a configured credential.

USE WHEN: User says "upload this image", "add file to wiki".

PARAMETERS:
- localFilePath: Absolute path of the local file (required)
- wikiFilename: Target name, e.g. MyImage.png or File:MyImage.png (required)
- comment: Upload log summary (default "Uploaded via MediaWiki MCP Server")
- ignoreWarnings: Overwrite or ignore duplicate warnings (default false)
- wikiUrl: Any URL of another wiki (optional)

RETURNS: File name, size and file page URL. Warnings are reported as an error unless ignoreWarnings is set.`,
		ReadOnly:    false,
		Destructive: true,
		Idempotent:  false,
		OpenWorld:   true,
	},

	// ==========================================================================
	// WIKI MANAGEMENT TOOLS
	// ==========================================================================
	{
		Name:     "add-wiki",
		Method:   "AddWiki",
		Title:    "Add wiki",
		Category: "wikis",
		Description: `Add a new wiki to the MCP resources from any of its URLs.

USE WHEN: User says "connect to wiki X", "add https://... as a wiki".

NOT FOR: Switching the wiki used by default (use set-wiki).

PARAMETERS:
- wikiUrl: Any URL of the target wiki, e.g. https://en.wikipedia.org/wiki/Main_Page (required)

RETURNS: Registry key, resource URI (mcp://wikis/{key}), site name and server.`,
		ReadOnly:    false,
		Destructive: false,
		Idempotent:  true,
		OpenWorld:   true,
	},
	{
		Name:     "remove-wiki",
		Method:   "RemoveWiki",
		Title:    "Remove wiki",
		Category: "wikis",
		Description: `Remove a wiki from the MCP resources.

USE WHEN: User says "forget wiki X", "remove the X wiki".

PARAMETERS:
- uri: Resource URI of the wiki, e.g. mcp://wikis/en.wikipedia.org (required)

RETURNS: The removed wiki.

NOTE: The current wiki cannot be removed; switch with set-wiki first.`,
		ReadOnly:    false,
		Destructive: true,
		Idempotent:  false,
		OpenWorld:   false,
	},
	{
		Name:     "set-wiki",
		Method:   "SetWiki",
		Title:    "Set wiki",
		Category: "wikis",
		Description: `Set the wiki used by the session when a tool call has no wikiUrl.

USE WHEN: User says "use wiki X from now on", "switch to https://...".

NOT FOR: A single call against another wiki (pass wikiUrl to that tool instead).

PARAMETERS:
- wikiUrl: Any URL of the target wiki (required)

RETURNS: The selected wiki's key, site name and server.`,
		ReadOnly:    false,
		Destructive: false,
		Idempotent:  true,
		OpenWorld:   true,
	},
}
