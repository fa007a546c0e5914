package view

import "workshop-tracker-backend/internal/model"

// NavItem is one sidebar entry. Visibility is a progressive-disclosure
// convenience only; the API re-checks roles on every request.
type NavItem struct {
	ID    string
	Label string
	Href  string
}

// Two permission tiers: admin-only entries and entries for admin or the
// elevated delivery role.
var (
	baseNav = []NavItem{
		{ID: "nav-dashboard", Label: "Tableau de bord", Href: "/dashboard"},
		{ID: "nav-my-tasks", Label: "Mes tâches", Href: "/dashboard#tasks"},
		{ID: "nav-machines", Label: "Machines", Href: "/machines"},
	}
	adminOnlyNav = []NavItem{
		{ID: "nav-clients", Label: "Clients", Href: "/clients"},
		{ID: "nav-users", Label: "Utilisateurs", Href: "/users"},
	}
	elevatedNav = []NavItem{
		{ID: "nav-add-machine", Label: "Ajouter machine", Href: "/machines#add"},
	}
)

// NavFor returns the sidebar entries visible to a role. Items a role may not
// use are omitted from the rendered page entirely.
func NavFor(role string) []NavItem {
	items := make([]NavItem, 0, len(baseNav)+len(adminOnlyNav)+len(elevatedNav))
	items = append(items, baseNav...)
	if role == model.RoleAdmin {
		items = append(items, adminOnlyNav...)
	}
	if role == model.RoleAdmin || role == model.RoleDeliveryTech {
		items = append(items, elevatedNav...)
	}
	return items
}

// CanSeeNavItem reports whether a nav item id is visible to the role.
func CanSeeNavItem(role, id string) bool {
	for _, item := range NavFor(role) {
		if item.ID == id {
			return true
		}
	}
	return false
}
