package model

// DefaultTargetURL is the listing search scraped when no URL is given.
const DefaultTargetURL = "https://www.equipmenttrader.com/Articulated-Boom-Lift/equipment-for-sale?category=Articulated%20Boom%20Lift%7C2011372"
