package hazard

import "fmt"

var descriptions = [...]string{
	"No hazard or no data",
	"Generally safe for vehicles, people and buildings",
	"Unsafe for small vehicles",
	"Unsafe for vehicles, children and the elderly",
	"Unsafe for vehicles and people",
	"Unsafe for vehicles and people; all buildings vulnerable to structural damage",
	"Unsafe for vehicles and people; all building types considered vulnerable to failure",
}

// Label returns the short name of a class, e.g. "H3".
func Label(class uint8) string {
	return fmt.Sprintf("H%d", class)
}

// Description returns the ARR vulnerability wording of a class.
func Description(class uint8) string {
	if int(class) >= len(descriptions) {
		return "Unknown hazard class"
	}
	return descriptions[class]
}
