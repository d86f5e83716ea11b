// Package report renders crawl summaries.
//
// A Summary condenses a crawl result and its metadata into counters and
// ranked tables: the most widely held stocks, the largest managers and the
// mix of trade actions. Writers render it:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: JSON for scripts
//   - MarkdownWriter: Markdown with a mermaid chart of the action mix
//
// Writers implement the Writer interface and can be combined with
// MultiWriter.
package report
