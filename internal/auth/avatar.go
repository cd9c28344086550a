package auth

import "strings"

// AvatarColors is the palette avatar backgrounds are picked from.
var AvatarColors = []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEEAD"}

// Avatar derives display initials and a stable background color.
func Avatar(username, email string) (initials, color string) {
	seed := username
	if seed == "" {
		seed = email
	}
	if seed == "" {
		seed = "default"
	}
	sum := 0
	for _, r := range seed {
		sum += int(r)
	}
	color = AvatarColors[sum%len(AvatarColors)]

	switch {
	case username != "":
		if parts := strings.Fields(username); len(parts) > 1 {
			initials = firstRune(parts[0]) + firstRune(parts[1])
		} else {
			r := []rune(username)
			initials = string(r[:min(len(r), 2)])
		}
	case email != "":
		initials = firstRune(email)
	}
	return strings.ToUpper(initials), color
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
