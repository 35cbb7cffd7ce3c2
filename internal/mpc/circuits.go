package mpc

import (
	"github.com/stanleykosi/veridian/internal/blackjack"
	"github.com/stanleykosi/veridian/internal/cards"
	"github.com/stanleykosi/veridian/internal/computation"
)

// args reads positional circuit inputs. The first bad read aborts; later
// reads return zero values.
type args struct {
	list []computation.Argument
	pos  int
	err  error
}

func (a *args) next(kind computation.ArgKind) computation.Argument {
	if a.err != nil {
		return computation.Argument{}
	}
	if a.pos >= len(a.list) {
		a.err = abortf("missing argument %d (%s)", a.pos, kind)
		return computation.Argument{}
	}
	arg := a.list[a.pos]
	if arg.Kind != kind {
		a.err = abortf("argument %d is %s, want %s", a.pos, arg.Kind, kind)
		return computation.Argument{}
	}
	a.pos++
	return arg
}

func (a *args) u8() uint8 { return uint8(a.next(computation.ArgU8).Value) }

func (a *args) nonce() uint64 { return a.next(computation.ArgNonce).Value }

func (a *args) pubKey() []byte { return a.next(computation.ArgPubKey).Bytes }

// encrypted reads a by-value ciphertext argument (its nonce travels in Value).
func (a *args) encrypted() computation.Encrypted {
	arg := a.next(computation.ArgCiphertext)
	return computation.Encrypted{Nonce: arg.Value, Ciphertexts: arg.Ciphertexts}
}

func (a *args) done() error {
	if a.err != nil {
		return a.err
	}
	if a.pos != len(a.list) {
		return abortf("%d unexpected arguments", len(a.list)-a.pos)
	}
	return nil
}

func nextNonce(n uint64) (uint64, error) {
	if n == ^uint64(0) {
		return 0, abortf("nonce space exhausted")
	}
	return n + 1, nil
}

// shuffleAndDeal: (player pubkey, client nonce, deck nonce, dealer nonce).
func (c *Cluster) shuffleAndDeal(req *computation.Request, in *args) ([]computation.ResultField, error) {
	pub := in.pubKey()
	clientNonce := in.nonce()
	deckNonce := in.nonce()
	dealerNonce := in.nonce()
	if err := in.done(); err != nil {
		return nil, err
	}
	shared, err := c.sharedKey(pub)
	if err != nil {
		return nil, err
	}
	mxe, err := c.sessionKey(req.SessionID)
	if err != nil {
		return nil, err
	}

	deck := c.shuffle(c.dealSeed(req.SessionID, pub, clientNonce, deckNonce))
	if !cards.IsPermutation(deck[:]) {
		return nil, abortf("shuffler returned an invalid deck")
	}
	player, dealer := blackjack.InitialDeal(deck)

	var r computation.DealResult
	if deckNonce, err = nextNonce(deckNonce); err != nil {
		return nil, err
	}
	if dealerNonce, err = nextNonce(dealerNonce); err != nil {
		return nil, err
	}
	if clientNonce, err = nextNonce(clientNonce); err != nil {
		return nil, err
	}
	if r.Deck, err = sealDeck(mxe, deckNonce, deck); err != nil {
		return nil, err
	}
	if r.DealerHand, err = sealHand(mxe, dealerNonce, streamDealer, dealer); err != nil {
		return nil, err
	}
	if r.PlayerHand, err = sealHand(shared, clientNonce, streamPlayer, player); err != nil {
		return nil, err
	}
	r.DealerFaceUp = uint8(dealer[0])
	return r.Fields(), nil
}

// playerHit: (deck ref, deck nonce, player hand, player pubkey, player size,
// dealer size). Double down uses the same circuit shape.
func (c *Cluster) playerHit(req *computation.Request, in *args) ([]computation.ResultField, error) {
	deckCts := in.encrypted()
	deckNonce := in.nonce()
	hand := in.encrypted()
	pub := in.pubKey()
	psize := in.u8()
	dsize := in.u8()
	if err := in.done(); err != nil {
		return nil, err
	}
	if int(psize) >= cards.HandSlots {
		return nil, abortf("player hand is full")
	}
	shared, err := c.sharedKey(pub)
	if err != nil {
		return nil, err
	}
	mxe, err := c.sessionKey(req.SessionID)
	if err != nil {
		return nil, err
	}
	deck, err := openDeck(mxe, deckNonce, deckCts.Ciphertexts)
	if err != nil {
		return nil, err
	}
	cardsIn, err := openHand(shared, hand, streamPlayer, psize)
	if err != nil {
		return nil, err
	}
	idx := blackjack.DrawIndex(int(psize), int(dsize))
	if idx >= cards.DeckSize {
		return nil, abortf("deck exhausted at %d", idx)
	}
	cardsIn = append(cardsIn, deck[idx])

	nonce, err := nextNonce(hand.Nonce)
	if err != nil {
		return nil, err
	}
	var r computation.HitResult
	if r.PlayerHand, err = sealHand(shared, nonce, streamPlayer, cardsIn); err != nil {
		return nil, err
	}
	r.Bust = blackjack.Bust(blackjack.HandValue(cardsIn, len(cardsIn)))
	return r.Fields(), nil
}

// playerStand: (player hand, player pubkey, player size).
func (c *Cluster) playerStand(in *args) ([]computation.ResultField, error) {
	hand := in.encrypted()
	pub := in.pubKey()
	psize := in.u8()
	if err := in.done(); err != nil {
		return nil, err
	}
	shared, err := c.sharedKey(pub)
	if err != nil {
		return nil, err
	}
	cardsIn, err := openHand(shared, hand, streamPlayer, psize)
	if err != nil {
		return nil, err
	}
	return computation.StandResult{Bust: blackjack.Bust(blackjack.HandValue(cardsIn, len(cardsIn)))}.Fields(), nil
}

// dealerPlay: (deck ref, deck nonce, dealer hand, player pubkey, display
// nonce, player size, dealer size, max draws).
func (c *Cluster) dealerPlay(req *computation.Request, in *args) ([]computation.ResultField, error) {
	deckCts := in.encrypted()
	deckNonce := in.nonce()
	hand := in.encrypted()
	pub := in.pubKey()
	displayNonce := in.nonce()
	psize := in.u8()
	dsize := in.u8()
	maxDraws := in.u8()
	if err := in.done(); err != nil {
		return nil, err
	}
	shared, err := c.sharedKey(pub)
	if err != nil {
		return nil, err
	}
	mxe, err := c.sessionKey(req.SessionID)
	if err != nil {
		return nil, err
	}
	deck, err := openDeck(mxe, deckNonce, deckCts.Ciphertexts)
	if err != nil {
		return nil, err
	}
	dealer, err := openHand(mxe, hand, streamDealer, dsize)
	if err != nil {
		return nil, err
	}
	dealer = blackjack.DealerPlay(deck, dealer, int(psize), int(maxDraws))

	var r computation.DealerPlayResult
	dealerNonce, err := nextNonce(hand.Nonce)
	if err != nil {
		return nil, err
	}
	if displayNonce, err = nextNonce(displayNonce); err != nil {
		return nil, err
	}
	if r.DealerHand, err = sealHand(mxe, dealerNonce, streamDealer, dealer); err != nil {
		return nil, err
	}
	if r.DealerDisplay, err = sealHand(shared, displayNonce, streamDisplay, dealer); err != nil {
		return nil, err
	}
	r.DealerSize = uint8(len(dealer))
	return r.Fields(), nil
}

// resolveGame: (player hand, player pubkey, player size, dealer hand,
// dealer size).
func (c *Cluster) resolveGame(req *computation.Request, in *args) ([]computation.ResultField, error) {
	phand := in.encrypted()
	pub := in.pubKey()
	psize := in.u8()
	dhand := in.encrypted()
	dsize := in.u8()
	if err := in.done(); err != nil {
		return nil, err
	}
	shared, err := c.sharedKey(pub)
	if err != nil {
		return nil, err
	}
	mxe, err := c.sessionKey(req.SessionID)
	if err != nil {
		return nil, err
	}
	player, err := openHand(shared, phand, streamPlayer, psize)
	if err != nil {
		return nil, err
	}
	dealer, err := openHand(mxe, dhand, streamDealer, dsize)
	if err != nil {
		return nil, err
	}
	pv := blackjack.HandValue(player, len(player))
	dv := blackjack.HandValue(dealer, len(dealer))
	return computation.ResolveResult{
		Winner:      uint8(blackjack.Resolve(pv, dv)),
		PlayerValue: uint8(pv),
		DealerValue: uint8(dv),
	}.Fields(), nil
}
