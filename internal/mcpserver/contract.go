package mcpserver

import (
	"github.com/starford/sitekeeper/internal/codec"
)

// BlockFormatURI identifies the block format resource.
const BlockFormatURI = "sitekeeper://block-format"

// BlockFormatContract describes how items are stored in the host pages so
// that callers know what their input turns into.
var BlockFormatContract = `# Sitekeeper Block Format

Sitekeeper manages two lists embedded in plain HTML pages. Every item is one
flat block; everything else in the page is left untouched.

## Updates

` + "```" + `html
    <div class="update">
      <strong>Title</strong>
      <em>2024-05-01 08:00</em>
      <p>Body text</p>
    </div>
` + "```" + `

New blocks are written right after the comment
` + "`" + codec.UpdatesMarker + "`" + `.

## Documents

` + "```" + `html
    <div class="doc-item">
      <strong>Name</strong>
      <em>2024-05-01 08:00</em>
      <a href="uploads/report.pdf" target="_blank">` + codec.Documents.LinkText + `</a>
    </div>
` + "```" + `

New blocks are written right after the comment
` + "`" + codec.DocumentsMarker + "`" + `.

## Rules

1. **Indexes are zero-based** and follow document order. Deleting an item
   shifts the ones after it.
2. **Dates are set on creation** (` + "`" + `YYYY-MM-DD HH:MM` + "`" + `, local time) and
   kept when an item is edited.
3. **Plain text only.** Titles and bodies are inserted verbatim; do not put
   ` + "`" + `</div>` + "`" + ` in them, it ends the block early when the page is read back.
4. **Documents are staged.** A file is copied into the staging directory; a
   directory is zipped as ` + "`" + `<name>.zip` + "`" + `. The block links to the staged copy.
   Files fetched with ` + "`" + `stage_upload` + "`" + ` are passed to ` + "`" + `add_document` + "`" + ` by name
   through the ` + "`" + `upload` + "`" + ` argument.
5. **Every change is published.** After a save the site is committed and
   pushed. A failed publish is reported but the saved change stays.
`
