package models

import "fmt"

// OutputClass represents one classifier label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet is the full list of labels of one dataset.
type OutputClassSet struct {
	// Name identifies the dataset.
	Name string
	// Classes that are supported and mappable.
	Classes []OutputClass
}

// Food11Classes are the eleven Food-11 categories in label order.
var Food11Classes = OutputClassSet{
	Name: "food-11",
	Classes: []OutputClass{
		{0, "Bread"},
		{1, "Dairy product"},
		{2, "Dessert"},
		{3, "Egg"},
		{4, "Fried food"},
		{5, "Meat"},
		{6, "Noodles/Pasta"},
		{7, "Rice"},
		{8, "Seafood"},
		{9, "Soup"},
		{10, "Vegetable/Fruit"},
	},
}

// LookupName returns the class name for an index.
// If index is out of range, it returns "class <idx>".
func (s OutputClassSet) LookupName(idx int) string {
	if idx >= 0 && idx < len(s.Classes) {
		return s.Classes[idx].Name
	}
	return fmt.Sprintf("class %d", idx)
}
