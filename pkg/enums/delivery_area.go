package enums

import "slices"

// DeliveryArea is the precomputed geographic tag on a delivery address.
type DeliveryArea string

const (
	DeliveryAreaNorth DeliveryArea = "north"
	DeliveryAreaEast  DeliveryArea = "east"
	DeliveryAreaSouth DeliveryArea = "south"
	DeliveryAreaWest  DeliveryArea = "west"
)

// DeliveryAreaProcessingOrder is the fixed order in which areas are numbered on a route day.
var DeliveryAreaProcessingOrder = []DeliveryArea{
	DeliveryAreaNorth,
	DeliveryAreaEast,
	DeliveryAreaSouth,
	DeliveryAreaWest,
}

func (a DeliveryArea) String() string {
	return string(a)
}

// IsValid reports whether the value is a known DeliveryArea.
func (a DeliveryArea) IsValid() bool {
	return slices.Contains(DeliveryAreaProcessingOrder, a)
}

// ParseDeliveryArea converts raw input into a DeliveryArea.
func ParseDeliveryArea(value string) (DeliveryArea, error) {
	return parse(value, DeliveryAreaProcessingOrder, "delivery area")
}
