package templates

func footerNote(footer string) string {
	if footer == "" {
		return DefaultFooterNote
	}
	return footer
}

func keyState(hasKey bool) string {
	if hasKey {
		return "configured"
	}
	return "not configured, pass ?key= on each request"
}
