package settings

// Mask replaces secrets in API responses.
const Mask = "••••••••"

func mask(v string) string {
	if v == "" {
		return ""
	}
	return Mask
}

func keep(old, next string) string {
	if next == Mask {
		return old
	}
	return next
}

// MaskSecrets returns a copy of s with every credential replaced by Mask.
func MaskSecrets(s Settings) Settings {
	out := s.Clone()
	for k, p := range out.Providers {
		p.APIKey = mask(p.APIKey)
		out.Providers[k] = p
	}
	out.Integrations.Telegram.BotToken = mask(out.Integrations.Telegram.BotToken)
	out.Integrations.Bitrix24.ClientSecret = mask(out.Integrations.Bitrix24.ClientSecret)
	out.KnowledgeSources.Bitrix24KB.AccessToken = mask(out.KnowledgeSources.Bitrix24KB.AccessToken)
	out.KnowledgeSources.Confluence.APIToken = mask(out.KnowledgeSources.Confluence.APIToken)
	return out
}

// MergeMasked returns next with masked credentials restored from old. Sync
// watermarks missing from next are kept as well, so a settings form that does
// not carry them cannot rewind a source.
func MergeMasked(old, next Settings) Settings {
	out := next.Clone()
	for k, p := range out.Providers {
		p.APIKey = keep(old.Providers[k].APIKey, p.APIKey)
		out.Providers[k] = p
	}

	tg := &out.Integrations.Telegram
	tg.BotToken = keep(old.Integrations.Telegram.BotToken, tg.BotToken)
	b24 := &out.Integrations.Bitrix24
	b24.ClientSecret = keep(old.Integrations.Bitrix24.ClientSecret, b24.ClientSecret)

	kb := &out.KnowledgeSources.Bitrix24KB
	kb.AccessToken = keep(old.KnowledgeSources.Bitrix24KB.AccessToken, kb.AccessToken)
	if kb.LastSync == "" {
		kb.LastSync = old.KnowledgeSources.Bitrix24KB.LastSync
	}
	cf := &out.KnowledgeSources.Confluence
	cf.APIToken = keep(old.KnowledgeSources.Confluence.APIToken, cf.APIToken)
	if cf.LastSync == "" {
		cf.LastSync = old.KnowledgeSources.Confluence.LastSync
	}
	gh := &out.KnowledgeSources.GitHub
	if gh.LastSync == "" {
		gh.LastSync = old.KnowledgeSources.GitHub.LastSync
	}
	return out
}
