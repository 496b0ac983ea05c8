package market

import (
	"sort"
	"time"

	"bcgrab/pkg/errors"
)

// Map is the immutable instrument and exchange lookup table for a run.
// Build one at startup and pass it down; nothing mutates it afterwards.
type Map struct {
	instruments map[string]Instrument
	exchanges   map[string]Exchange
}

// NewMap builds a Map from the given tables. Instrument.Code is filled in
// from the map key if unset.
func NewMap(instruments map[string]Instrument, exchanges map[string]Exchange) Map {
	instrs := make(map[string]Instrument, len(instruments))
	for code, in := range instruments {
		if in.Code == "" {
			in.Code = code
		}
		instrs[code] = in
	}
	exs := make(map[string]Exchange, len(exchanges))
	for name, ex := range exchanges {
		exs[name] = ex
	}
	return Map{instruments: instrs, exchanges: exs}
}

// Instrument looks up an instrument by its config code.
func (m Map) Instrument(code string) (Instrument, error) {
	in, ok := m.instruments[code]
	if !ok {
		return Instrument{}, errors.New(errors.KindConfig, "instrument %q not found", code)
	}
	return in, nil
}

// ExchangeFor returns the exchange an instrument trades on.
func (m Map) ExchangeFor(in Instrument) (Exchange, error) {
	ex, ok := m.exchanges[in.Exchange]
	if !ok {
		return Exchange{}, errors.New(errors.KindConfig, "exchange %q for instrument %q not found", in.Exchange, in.Code)
	}
	return ex, nil
}

// Codes returns all instrument codes in sorted order.
func (m Map) Codes() []string {
	codes := make([]string, 0, len(m.instruments))
	for code := range m.instruments {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Contracts enumerates every contract of an instrument in [startYear,
// endYear], years ascending, cycle order within a year.
func (m Map) Contracts(code string, startYear, endYear int) ([]Contract, error) {
	in, err := m.Instrument(code)
	if err != nil {
		return nil, err
	}
	if _, err := m.ExchangeFor(in); err != nil {
		return nil, err
	}
	var contracts []Contract
	for year := startYear; year <= endYear; year++ {
		for _, letter := range in.Cycle {
			month, err := MonthFromLetter(letter)
			if err != nil {
				return nil, errors.Wrap(errors.KindConfig, err, "instrument %q has a bad cycle %q", code, in.Cycle)
			}
			contracts = append(contracts, Contract{Instrument: in, Year: year, Month: month})
		}
	}
	return contracts, nil
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DefaultExchanges holds the documented earliest data availability per
// exchange: EOD history reaches back decades, intraday only to the late
// 2000s.
func DefaultExchanges() map[string]Exchange {
	return map[string]Exchange{
		"CME":    {EarliestDaily: date(1959, time.July, 1), EarliestHourly: date(2008, time.January, 2)},
		"CBOT":   {EarliestDaily: date(1959, time.July, 1), EarliestHourly: date(2008, time.January, 2)},
		"COMEX":  {EarliestDaily: date(1978, time.February, 27), EarliestHourly: date(2008, time.May, 4)},
		"NYMEX":  {EarliestDaily: date(1983, time.March, 30), EarliestHourly: date(2008, time.May, 4)},
		"ICE":    {EarliestDaily: date(1984, time.May, 3), EarliestHourly: date(2008, time.February, 1)},
		"EUREX":  {EarliestDaily: date(1990, time.November, 23), EarliestHourly: date(2009, time.June, 15)},
		"SGX":    {EarliestDaily: date(1989, time.March, 1), EarliestHourly: date(2010, time.January, 4)},
		"HKEX":   {EarliestDaily: date(1992, time.April, 1), EarliestHourly: date(2011, time.March, 7)},
		"OSE":    {EarliestDaily: date(1988, time.September, 5), EarliestHourly: date(2011, time.February, 14)},
		"CFE":    {EarliestDaily: date(2004, time.March, 26), EarliestHourly: date(2009, time.October, 1)},
		"SMALLS": {EarliestDaily: date(2019, time.May, 6), EarliestHourly: date(2019, time.May, 6)},
	}
}

// DefaultInstruments holds the built-in contract map: vendor symbol root,
// contract month cycle and exchange per instrument code.
func DefaultInstruments() map[string]Instrument {
	return map[string]Instrument{
		"AUD":       {Symbol: "A6", Cycle: "HMUZ", Exchange: "CME"},
		"CAD":       {Symbol: "D6", Cycle: "HMUZ", Exchange: "CME"},
		"CHF":       {Symbol: "S6", Cycle: "HMUZ", Exchange: "CME"},
		"EUR":       {Symbol: "E6", Cycle: "HMUZ", Exchange: "CME"},
		"GBP":       {Symbol: "B6", Cycle: "HMUZ", Exchange: "CME"},
		"JPY":       {Symbol: "J6", Cycle: "HMUZ", Exchange: "CME"},
		"CORN":      {Symbol: "ZC", Cycle: "HKNUZ", Exchange: "CBOT"},
		"SOYBEAN":   {Symbol: "ZS", Cycle: "FHKNQUX", Exchange: "CBOT"},
		"WHEAT":     {Symbol: "ZW", Cycle: "HKNUZ", Exchange: "CBOT"},
		"US10":      {Symbol: "ZN", Cycle: "HMUZ", Exchange: "CBOT"},
		"US30":      {Symbol: "ZB", Cycle: "HMUZ", Exchange: "CBOT"},
		"SP500":     {Symbol: "ES", Cycle: "HMUZ", Exchange: "CME"},
		"NASDAQ":    {Symbol: "NQ", Cycle: "HMUZ", Exchange: "CME"},
		"LEANHOG":   {Symbol: "HE", Cycle: "GJKMNQVZ", Exchange: "CME"},
		"LIVECOW":   {Symbol: "LE", Cycle: "GJMQVZ", Exchange: "CME"},
		"GOLD":      {Symbol: "GC", Cycle: "GJMQVZ", Exchange: "COMEX"},
		"SILVER":    {Symbol: "SI", Cycle: "FHKNUZ", Exchange: "COMEX"},
		"COPPER":    {Symbol: "HG", Cycle: "FGHJKMNQUVXZ", Exchange: "COMEX"},
		"CRUDE_W":   {Symbol: "CL", Cycle: "FGHJKMNQUVXZ", Exchange: "NYMEX"},
		"HEATOIL":   {Symbol: "HO", Cycle: "FGHJKMNQUVXZ", Exchange: "NYMEX"},
		"GAS_US":    {Symbol: "NG", Cycle: "FGHJKMNQUVXZ", Exchange: "NYMEX"},
		"GASOLINE":  {Symbol: "RB", Cycle: "FGHJKMNQUVXZ", Exchange: "NYMEX"},
		"PLAT":      {Symbol: "PL", Cycle: "FJNV", Exchange: "NYMEX"},
		"COCOA":     {Symbol: "CC", Cycle: "HKNUZ", Exchange: "ICE"},
		"COFFEE":    {Symbol: "KC", Cycle: "HKNUZ", Exchange: "ICE"},
		"COTTON":    {Symbol: "CT", Cycle: "HKNZ", Exchange: "ICE"},
		"SUGAR":     {Symbol: "SB", Cycle: "HKNV", Exchange: "ICE"},
		"FTSE100":   {Symbol: "X", Cycle: "HMUZ", Exchange: "ICE"},
		"BUND":      {Symbol: "GG", Cycle: "HMUZ", Exchange: "EUREX"},
		"DAX":       {Symbol: "DY", Cycle: "HMUZ", Exchange: "EUREX"},
		"EUROSTX":   {Symbol: "FX", Cycle: "HMUZ", Exchange: "EUREX"},
		"VIX":       {Symbol: "VI", Cycle: "FGHJKMNQUVXZ", Exchange: "CFE"},
	}
}

// DefaultMap builds a Map from the built-in tables.
func DefaultMap() Map {
	return NewMap(DefaultInstruments(), DefaultExchanges())
}
