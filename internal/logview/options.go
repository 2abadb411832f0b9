package logview

import "github.com/noah-isme/attendance-dashboard-api/internal/models"

var (
	studentOptions  = []SortOption{SortLatestDate, SortOldestDate, SortName}
	educatorOptions = []SortOption{SortLatestDate, SortOldestDate, SortStudentName, SortClassName}

	sortLabels = map[SortOption]string{
		SortLatestDate:  "Latest Date",
		SortOldestDate:  "Oldest Date",
		SortClassName:   "Class Name",
		SortName:        "Class Name",
		SortStudentName: "Student Name",
	}
)

// OptionsFor lists the sort options a role is offered, in menu order.
func OptionsFor(role models.UserRole) []SortOption {
	if role == models.RoleEducator {
		return append([]SortOption(nil), educatorOptions...)
	}
	return append([]SortOption(nil), studentOptions...)
}

// Offered reports whether role may use opt. The class name aliases are accepted for both roles.
func Offered(role models.UserRole, opt SortOption) bool {
	switch opt {
	case SortLatestDate, SortOldestDate, SortClassName, SortName:
		return true
	case SortStudentName:
		return role == models.RoleEducator
	default:
		return false
	}
}

// Label returns the display label of opt.
func Label(opt SortOption) string {
	return sortLabels[opt]
}

// OptionInfos returns the options offered to role with their labels.
func OptionInfos(role models.UserRole) []models.SortOptionInfo {
	opts := OptionsFor(role)
	out := make([]models.SortOptionInfo, len(opts))
	for i, opt := range opts {
		out[i] = models.SortOptionInfo{Value: string(opt), Label: Label(opt)}
	}
	return out
}
