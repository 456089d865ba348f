// Package pprint: agentdeck banner.
package pprint

import "fmt"

// PrintBanner prints the agentdeck banner with version and tagline.
func PrintBanner(version, buildDate string) {
	line1 := StylePrimary.Render("   ▄▀█ █▀▀ █▀▀ █▄ █ ▀█▀ █▀▄ █▀▀ █▀▀ █▄▀")
	line2 := StyleAccent.Render("   █▀█ █▄█ ██▄ █ ▀█  █  █▄▀ ██▄ █▄▄ █ █")

	fmt.Println()
	fmt.Println(line1)
	fmt.Println(line2)
	fmt.Println()

	tagline := StyleMuted.Render("  Control deck for your local deployment agent")
	versionStr := StyleAccent.Render("  " + version)
	if buildDate != "" {
		versionStr += StyleMuted.Render("  built " + buildDate)
	}

	fmt.Println(tagline)
	fmt.Println(versionStr)
	fmt.Println()
}

// PrintBannerSmall prints a compact single-line brand prefix.
func PrintBannerSmall() {
	fmt.Print(StylePrimary.Render("◉ AGENTDECK") + " ")
}
