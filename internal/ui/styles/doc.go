// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the relaychat TUI.

The package defines the color palette and the Theme struct used
throughout the application. All colors use Lip Gloss AdaptiveColor for
automatic light/dark terminal detection.

# Color System (colors.go)

Accent colors (Purple, Cyan, Emerald, Amber, Rose) carry semantic
meaning: purple for assistant content, cyan for user content and
prompts, rose for errors, amber for warnings and retries.

Message bubbles, surfaces, and text use dedicated tokens so views never
reference raw hex values.

# Theme System (theme.go)

The Theme struct provides runtime color adaptation:

	theme := styles.NewTheme()
	if theme.IsDark {
		// Dark terminal detected
	}

All styles used by the chat view hang off the Theme so a view only ever
touches theme fields.
*/
package styles
