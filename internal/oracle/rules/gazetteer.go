package rules

// Word lists driving the rule recognizer. Keys are lower-case token texts;
// multi-word entries are space-joined token sequences.

// personTitles precede a personal name.
var personTitles = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "miss": true, "mx": true,
	"dr": true, "prof": true, "sri": true, "smt": true, "shri": true,
	"patient": true, "pt": true, "name": true,
}

// orgSuffixes end an organisation name ("Apollo Hospital", "Star Health Insurance").
var orgSuffixes = map[string]bool{
	"hospital": true, "hospitals": true, "clinic": true, "clinics": true,
	"insurance": true, "healthcare": true, "pharmacy": true, "pharma": true,
	"laboratories": true, "labs": true, "institute": true, "foundation": true,
	"trust": true, "corporation": true, "inc": true, "ltd": true, "llc": true,
	"center": true, "centre": true, "nursing": true,
}

// facilitySuffixes end a facility name without a street number.
var facilitySuffixes = map[string]bool{
	"street": true, "road": true, "avenue": true, "lane": true, "boulevard": true,
	"tower": true, "towers": true, "building": true, "complex": true,
	"airport": true, "bridge": true, "station": true, "nagar": true, "colony": true,
}

// gpeNames are countries, states and cities not already covered by the
// regex city rule.
var gpeNames = map[string]bool{
	"india": true, "usa": true, "uk": true, "united states": true,
	"united kingdom": true, "canada": true, "australia": true, "germany": true,
	"france": true, "china": true, "japan": true, "singapore": true, "dubai": true,
	"sri lanka": true, "nepal": true, "bangladesh": true, "pakistan": true,
	"tamil nadu": true, "kerala": true, "karnataka": true, "maharashtra": true,
	"gujarat": true, "rajasthan": true, "punjab": true, "telangana": true,
	"west bengal": true, "uttar pradesh": true, "andhra pradesh": true, "goa": true,
	"new york": true, "london": true, "boston": true, "chicago": true,
	"california": true, "texas": true, "toronto": true, "sydney": true,
	"coimbatore": true, "madurai": true, "mysore": true, "nagpur": true,
	"surat": true, "indore": true, "bhopal": true, "patna": true, "kochi": true,
	"new delhi": true, "noida": true, "gurgaon": true, "chandigarh": true,
}

// locNames are geographic locations that are not political entities.
var locNames = map[string]bool{
	"himalayas": true, "western ghats": true, "eastern ghats": true,
	"ganges": true, "yamuna": true, "deccan": true, "sahara": true,
	"bay of bengal": true, "arabian sea": true, "indian ocean": true,
}

var months = map[string]bool{
	"january": true, "february": true, "march": true, "april": true, "may": true,
	"june": true, "july": true, "august": true, "september": true, "october": true,
	"november": true, "december": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true, "jul": true,
	"aug": true, "sep": true, "sept": true, "oct": true, "nov": true, "dec": true,
}

var weekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

// maxGazetteerWords is the longest multi-word entry in gpeNames/locNames.
const maxGazetteerWords = 3
