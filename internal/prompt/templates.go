package prompt

// DefaultSystem is the system prompt sent with every request.
const DefaultSystem = "You craft concise, engaging overviews for media items."

// DefaultAlbum is the user prompt for music albums.
const DefaultAlbum = `Write a vibrant, Spotify-style album blurb (18-25 words) for "{{.Title}}" ({{.Year}}) by {{.Artist}}. ` +
	`Summarize sound & theme, add one concrete hook (hit track, chart feat.). ` +
	`Use max one vivid adjective per phrase. Genres: {{.Genres}}. Current: {{.Current}}`

// DefaultArtist is the user prompt for music artists.
const DefaultArtist = `Write a concise artist bio (20-30 words) for {{.Title}}. ` +
	`Include origin, style, and one standout milestone. Genres: {{.Genres}}. Current: {{.Current}}`

// DefaultFallback is used for every other item kind.
const DefaultFallback = `Rewrite this {{.Kind}} overview (25-40 words) in polished streaming style. ` +
	`Title: {{.Title}}. Year: {{.Year}}. Current: {{.Current}}`
