package bgg

import "encoding/xml"

// XML document shapes for the three upstream operations. Fields of interest
// are attributes on named elements; anything else is ignored. The XMLName on
// each document pins the root element so queued "<message>" payloads fail to
// unmarshal and get retried instead of parsing as empty results.

type valueAttr struct {
	Value string `xml:"value,attr"`
}

type thingDoc struct {
	XMLName xml.Name    `xml:"items"`
	Items   []thingItem `xml:"item"`
}

type thingItem struct {
	ID            string      `xml:"id,attr"`
	ObjectID      string      `xml:"objectid,attr"`
	Names         []nameElem  `xml:"name"`
	YearPublished valueAttr   `xml:"yearpublished"`
	MinPlayers    valueAttr   `xml:"minplayers"`
	MaxPlayers    valueAttr   `xml:"maxplayers"`
	MinPlaytime   valueAttr   `xml:"minplaytime"`
	MaxPlaytime   valueAttr   `xml:"maxplaytime"`
	Image         string      `xml:"image"`
	Thumbnail     string      `xml:"thumbnail"`
	Description   string      `xml:"description"`
	Links         []linkElem  `xml:"link"`
	Ratings       ratingsElem `xml:"statistics>ratings"`
}

type nameElem struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type linkElem struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type ratingsElem struct {
	UsersRated    valueAttr  `xml:"usersrated"`
	Average       valueAttr  `xml:"average"`
	BayesAverage  valueAttr  `xml:"bayesaverage"`
	AverageWeight valueAttr  `xml:"averageweight"`
	Ranks         []rankElem `xml:"ranks>rank"`
}

type rankElem struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type searchDoc struct {
	XMLName xml.Name     `xml:"items"`
	Items   []searchItem `xml:"item"`
}

type searchItem struct {
	ID   string `xml:"id,attr"`
	Type string `xml:"type,attr"`
}

type hotDoc struct {
	XMLName xml.Name  `xml:"items"`
	Items   []hotItem `xml:"item"`
}

type hotItem struct {
	ID       string `xml:"id,attr"`
	ObjectID string `xml:"objectid,attr"`
}
